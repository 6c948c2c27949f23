// Package main is the terminal playback client: it probes the HLS manifest,
// drives the playback state machine, and joins the stream's viewer channel
// for presence and chat.
package main

func main() {
	Execute()
}

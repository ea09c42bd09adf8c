// Command contentgate runs the content policy gate and repair engine.
//
// Usage:
//
//	# Process jobs from the inbox, the Redis list and the nightly sweep
//	contentgate worker --config contentgate.yaml
//
//	# Queue one page refresh
//	contentgate enqueue --item brake-pads --role advice
//
//	# Replay recorded sessions against the current gates
//	contentgate replay testdata/observe_session.json
//
//	# Show the last decisions of a page
//	contentgate inspect decisions --item brake-pads --role advice
package main

func main() {
	Execute()
}

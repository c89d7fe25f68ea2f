/*
Package runner continues sessions from snapshot files.

A program that registers its tasks and configurations at start-up becomes a
bundle that other processes and hosts can run sessions with:

	func main() {
		registerTasks()
		if runner.Requested(os.Args[1:]) {
			os.Exit(runner.Main(os.Args[1:]))
		}
		// regular program
	}

The bundle reads the snapshot given with --input, proceeds the session and
writes the resulting snapshot to --output. --run-id makes the process join
the run of the caller.
*/
package runner

/*
Package bandsaw runs Go functions as tasks wrapped by a chain of advices.

An advice hooks into a task before and after it runs and decides when the
chain moves on. Because the whole state of an execution lives in a
serializable session, advices can move the rest of the chain elsewhere: into
another goroutine, another process or another machine, and bring the result
back. Caching, remote execution and instrumentation are all built that way.

# Usage

Register the task functions and a configuration in every process that might
run them, including the bundle executed on remotes:

	func main() {
		bandsaw.Task("train", train)

		cfg := session.NewConfiguration("ml",
			session.WithAdviceChain(session.DefaultChain,
				cache.New(cache.NewFileStore(".bandsaw/cache"))))
		if err := session.Register(cfg); err != nil {
			log.Fatal(err)
		}

		// continue sessions when started as a bundle by a remote advice
		bandsaw.ContinueIfRequested()

		value, err := bandsaw.New(cfg).Execute(context.Background(), "train", 0.01, 64)
		...
	}

A configuration can also be built from a bandsaw.yaml file with
LoadConfiguration.
*/
package bandsaw

package async

// Gather0 completes once every job in c has completed.
func Gather0(c ...<-chan struct{}) <-chan struct{} {
	return Job(func() {
		for _, f := range c {
			<-f
		}
	})
}

// GatherN collects the results of the promises in order.
func GatherN[R any](cs ...<-chan R) <-chan []R {
	return Promise(func() []R {
		results := make([]R, len(cs))
		for i, f := range cs {
			results[i] = <-f
		}
		return results
	})
}

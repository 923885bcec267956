package async

// Promise runs f in its own goroutine. The result is buffered, so an
// abandoned promise still finishes.
func Promise[R any](f func() R) <-chan R {
	out := make(chan R, 1)
	go func() {
		out <- f()
	}()
	return out
}

package async

import (
	"bufio"
	"io"
)

// Lines streams the lines of r until EOF. The channel is closed afterwards.
func Lines(r io.Reader) <-chan string {
	out := make(chan string)
	go func() {
		defer close(out)
		scanner := bufio.NewScanner(r)
		for scanner.Scan() {
			out <- scanner.Text()
		}
	}()
	return out
}

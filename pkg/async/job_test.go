package async

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestJob(t *testing.T) {
	done := Job(func() {
		time.Sleep(100 * time.Millisecond)
	})

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("job never finished")
	}
}

func TestJobPanicStillCloses(t *testing.T) {
	var recovered any
	done := Job(func() {
		defer func() { recovered = recover() }()
		panic("boom")
	})
	<-done
	assert.Equal(t, "boom", recovered)
}

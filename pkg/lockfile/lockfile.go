// Package lockfile serializes work across processes with an exclusively
// created file.
package lockfile

import (
	"context"
	"os"
	"strconv"
	"time"
)

// Take creates path, waiting until it can. waiting is called on every
// failed attempt. The returned func removes the lock.
func Take(ctx context.Context, path string, waiting func()) (func(), error) {
	tk := time.NewTicker(time.Second)
	defer tk.Stop()

	var (
		f   *os.File
		err error
	)

	for {
		f, err = os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0644)
		if err == nil {
			break
		}

		if !os.IsExist(err) {
			return nil, err
		}

		if waiting != nil {
			waiting()
		}

		select {
		case <-tk.C:
			// ok
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	f.WriteString(strconv.Itoa(os.Getpid()))
	f.Close()

	closer := func() {
		os.Remove(path)
	}

	return closer, nil
}

// Holder returns the pid recorded in the lock at path, or 0.
func Holder(path string) int {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0
	}

	pid, err := strconv.Atoi(string(data))
	if err != nil {
		return 0
	}

	return pid
}

package cmd

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCmd(t *testing.T) {
	t.Run("fills positional struct fields in order", func(t *testing.T) {
		var got struct {
			Archive string
			Name    string
		}

		c := New("install", "install things", func(ctx context.Context, opts struct {
			Yes bool `short:"y"`
			Pos struct {
				Archive string
				Name    string
			} `positional-args:"yes"`
		}) error {
			assert.True(t, opts.Yes)
			got.Archive = opts.Pos.Archive
			got.Name = opts.Pos.Name
			return nil
		})

		assert.Equal(t, 0, c.Run([]string{"-y", "mod.zip", "Sky"}))
		assert.Equal(t, "mod.zip", got.Archive)
		assert.Equal(t, "Sky", got.Name)
	})

	t.Run("fills a positional slice", func(t *testing.T) {
		var got []string

		c := New("args", "", func(ctx context.Context, opts struct {
			Args []string `positional-args:"yes"`
		}) error {
			got = opts.Args
			return nil
		})

		assert.Equal(t, 0, c.Run([]string{"a", "b"}))
		assert.Equal(t, []string{"a", "b"}, got)
	})

	t.Run("returns 1 when the function fails", func(t *testing.T) {
		c := New("fail", "", func(ctx context.Context, opts struct{}) error {
			return assert.AnError
		})

		c.Stderr = &discard{}

		assert.Equal(t, 1, c.Run(nil))
	})
}

type discard struct{}

func (discard) Write(p []byte) (int, error) { return len(p), nil }

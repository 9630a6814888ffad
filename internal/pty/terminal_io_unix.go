//go:build !windows

package pty

import (
	"os"

	creackpty "github.com/creack/pty"
)

func resizePtmx(ptmx *os.File, cols, rows int) error {
	return creackpty.Setsize(ptmx, &creackpty.Winsize{
		Cols: uint16(cols),
		Rows: uint16(rows),
	})
}

// Package main はpushfanの運用コマンド pushctl のエントリーポイント。
package main

import (
	"fmt"
	"os"

	"github.com/nao1215/pushfan/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

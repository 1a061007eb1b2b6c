package main

import (
	// Provider adapters register themselves with the drive factory.
	_ "github.com/ypsync/ypsync/internal/drive/baidu"
	_ "github.com/ypsync/ypsync/internal/drive/quark"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		exitOnError(err)
	}
}

package main

import (
	"fmt"
	"os"
	_ "time/tzdata" // recency bands and --tz need zone data on minimal images
)

func main() {
	if err := execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

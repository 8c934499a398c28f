/*
ShibuVec - Fast, reliable, and scalable embedded vector database.
Copyright (C) 2025 Podcopic Labs

This program is free software: you can redistribute it and/or modify
it under the terms of the GNU Affero General Public License as published by
the Free Software Foundation, either version 3 of the License, or
(at your option) any later version.

This program is distributed in the hope that it will be useful,
but WITHOUT ANY WARRANTY; without even the implied warranty of
MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
GNU Affero General Public License for more details.

You should have received a copy of the GNU Affero General Public License
along with this program.  If not, see <https://www.gnu.org/licenses/>.
*/

package main

import (
	"fmt"
	"os"

	"github.com/shibudb.org/shibuvec/internal/bootstrap"
)

// Version is injected at build time via ldflags.
var Version = "unknown"

const (
	green = "\033[32m"
	blue  = "\033[34m"
	reset = "\033[0m"
)

func main() {
	if len(os.Args) < 2 {
		fmt.Println("Usage: shibuvec [run <config.toml> | --version | --help]")
		return
	}

	switch os.Args[1] {
	case "--version":
		printVersion()
	case "run":
		if len(os.Args) != 3 {
			fmt.Println("Usage: shibuvec run <config.toml>")
			os.Exit(1)
		}
		runServer(os.Args[2])
	case "--help":
		printHelp()
	default:
		fmt.Println("Unknown command:", os.Args[1])
		os.Exit(1)
	}
}

func runServer(configPath string) {
	printStartupBanner()
	if err := bootstrap.Run(configPath); err != nil {
		fmt.Fprintf(os.Stderr, "shibuvec: %v\n", err)
		os.Exit(1)
	}
}

func printVersion() {
	fmt.Printf("ShibuVec version %s\n", Version)
	fmt.Printf("Copyright (C) 2025 Podcopic Labs\n")
	fmt.Printf("License: GNU Affero General Public License v3.0\n")
}

func printHelp() {
	fmt.Println(`ShibuVec - Embedded Vector Database
Usage:
  shibuvec run <config.toml>   Start the ShibuVec HTTP server from a config file
  shibuvec --version           Show version information
  shibuvec --help              Show this help message`)
}

func printStartupBanner() {
	fmt.Println(green + `
  ____  _     _  _             __     __
 / ___|| |__ (_)| |__  _   _    \ \   / /__  ___
 \___ \| '_ \| || '_ \| | | |    \ \ / / _ \/ __|
  ___) | | | | || |_) | |_| |     \ V /  __/ (__
 |____/|_| |_|_||_.__/ \__,_|      \_/ \___|\___|
` + reset)
	fmt.Printf("%sVersion:%s %s\n", blue, reset, Version)
}

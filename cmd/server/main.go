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

// Command server is the standalone ShibuVec server binary: `shibuvec-server
// <config.toml>`. The root shibuvec CLI's `run` subcommand wraps the same
// internal/bootstrap.Run entry point.
package main

import (
	"fmt"
	"os"

	"github.com/shibudb.org/shibuvec/internal/bootstrap"
)

func main() {
	if len(os.Args) != 2 {
		fmt.Fprintln(os.Stderr, "Usage: shibuvec-server <config.toml>")
		os.Exit(1)
	}
	if err := bootstrap.Run(os.Args[1]); err != nil {
		fmt.Fprintf(os.Stderr, "shibuvec-server: %v\n", err)
		os.Exit(1)
	}
}

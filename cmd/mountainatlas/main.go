package main

import "github.com/MeKo-Tech/mountainatlas/internal/cmd"

func main() {
	cmd.Execute()
}

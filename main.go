package main

import (
	"github.com/praetorian-inc/diskaudit/cmd"
)

func main() {
	cmd.Execute()
}

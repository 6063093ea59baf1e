package main

import "github.com/kozaktomas/kiosk/cmd"

func main() {
	cmd.Execute()
}

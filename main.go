package main

import "selfserv.net/certsync/cmd"

func main() {
	cmd.Execute()
}

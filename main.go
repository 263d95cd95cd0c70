package main

import "github.com/AzielCF/az-users/cmd"

func main() {
	cmd.Execute()
}

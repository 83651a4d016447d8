package main

import "github.com/andresmejia3/facecrop/cmd"

func main() {
	cmd.Execute()
}

package main

import "image-vector-index/cmd"

func main() {
	cmd.Execute()
}

package main

import "github.com/saadjs/nibbles/cmd/nibbles"

func main() {
	nibbles.Execute()
}

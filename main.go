package main

import "github.com/mocapnet/hostcore/cmd/mocaphost"

func main() {
	mocaphost.Execute()
}

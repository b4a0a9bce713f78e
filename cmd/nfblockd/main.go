package main

import "github.com/jmakovicka/nfblock/cmd/nfblockd/cmd"

func main() {
	cmd.Execute()
}

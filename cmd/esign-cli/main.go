// esign-cli is a command line client for the esign-server admin API.
package main

import "github.com/information-sharing-networks/esign-demo/internal/cli"

func main() {
	cli.Execute()
}

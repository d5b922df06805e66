// Package main is the entry point for the reverse proxy.
package main

func main() {
	Execute()
}

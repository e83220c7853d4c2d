// Package main is the entry point for ondemand.
package main

func main() {
	Execute()
}

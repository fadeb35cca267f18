// Command sds runs the typed time-series store and its sample walkthrough.
package main

func main() {
	Execute()
}

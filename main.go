package main

import "learnopt/internal/app"

func main() {
	app.Main()
}

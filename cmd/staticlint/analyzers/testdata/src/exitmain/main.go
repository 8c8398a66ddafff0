package main

import "os"

func run() int {
	return 0
}

func helper() {
	os.Exit(2)
}

func main() {
	defer helper()
	os.Exit(run()) // want "прямой вызов os.Exit в функции main запрещен"
}

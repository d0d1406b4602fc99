package main

import (
	"daybrief/cmd/handlers"
	"daybrief/internal/logger"
)

func main() {
	logger.Init()
	handlers.Execute()
}

package main

import (
	"github.com/mastergamma8/Testmsg/internal/server"
)

func main() {
	s := server.New()
	s.RegisterRoutes()
	s.Start()
}

package main

import "github.com/iliyamo/webmail-relay/internal/app"

func main() {
	app.Execute()
}

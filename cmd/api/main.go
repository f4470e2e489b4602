package main

import "log"

func main() {

	app, err := InitializeApplication()
	if err != nil {
		log.Fatal(err)
		return
	}

	if err = app.run(); err != nil {
		log.Fatal(err.Error())
	}

}

package main

import "example.com/app/widgets"

func main() {
	b := widgets.NewButton("ok")
	b.SetText("done")
}

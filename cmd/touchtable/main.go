// Command touchtable tracks fingers and objects on a camera based touch
// table and streams their outlines to a consumer over TCP
package main

func main() {
	Execute()
}

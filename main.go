package main

import "github.com/adversarial-rl/gail/examples"

func main() {
	examples.VailDiscriminator()
}

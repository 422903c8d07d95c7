// Aerographer - schema-driven cloud inventory and compliance scanner.
package main

func main() {
	Execute()
}

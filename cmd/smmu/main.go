// The smmu command replays translation traces through the SMMU translation
// engines and reports TLB and fault statistics.
package main

func main() {
	Execute()
}

// beaconctl is an operator CLI for the beacon SDK: it inspects the offline
// spool, drives test sends against a collection endpoint, and manages the
// config file shared with embedding apps.
package main

func main() {
	Execute()
}

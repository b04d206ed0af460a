// Package onboarding adds Wi-Fi smart plugs to a room.
//
// A new plug boots as an access point named after its chipset (by default
// "ESP8266..."). Onboarding walks one user through four steps:
//
//	scan → select → connect → configure
//
// Scan lists nearby networks, Select accepts only networks whose SSID
// carries the device prefix, Connect joins the plug's network with the
// password printed on the device and Configure names the plug, resolves its
// address and creates the device record.
//
// Radio access sits behind the Scanner interface. The SimulatedScanner
// fabricates plugs for development and tests. Device addresses come from a
// Resolver: mDNS browsing via zeroconf, a fixed address, or a chain of both.
package onboarding

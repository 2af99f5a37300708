// Package mqttwire implements the MQTT-flavoured framing spoken by the
// market-data upstream inside WebSocket binary messages: the remaining
// length varint, packet iteration and classification, PUBLISH extraction,
// SUBSCRIBE bodies and the CONNECT token splicer.
//
// None of the functions here perform I/O.
package mqttwire

/*
Package noip keeps No-IP dynamic DNS hostnames pointed at this host's public IP address
and reports the outcome of each update as a contact sensor accessory.

Usage starts with [NewPlatform],
which takes the platform configuration and a [Host] implementation.
[Platform.Launch] reconciles the configured devices with the host's cached accessories,
and [Platform.Run] drives one refresh loop per device until its context is cancelled.

Each refresh cycle resolves the public address with a [Resolver],
sends it to No-IP with an [Updater],
and interprets the plain text reply with [Interpret].
A closed sensor means No-IP confirmed the address with "good" or "nochg".
Rejections and failed lookups or requests open the sensor;
a reply that is not recognized leaves it as it was.

Replies that No-IP documents as permanent ("badauth", "nohost", and friends) suspend the device until [Device.Resume] is called or the process restarts.
A "911" reply pauses the device for at least [ServerErrorBackoff].
*/
package noip

package core

import "github.com/marklacroix/dht/bus"

// Topic layout:
//
//	config/hal                                     retained configuration
//	hal/state                                      retained service state
//	hal/cap/<domain>/<kind>/<name>/info            retained, cleared on removal
//	hal/cap/<domain>/<kind>/<name>/status          retained link state
//	hal/cap/<domain>/<kind>/<name>/value           retained last reading
//	hal/cap/<domain>/<kind>/<name>/event[/<tag>]   non-retained
//	hal/cap/<domain>/<kind>/<name>/control/<verb>  request/reply

func T(tokens ...any) bus.Topic { return bus.T(tokens...) }

func topicConfigHAL() bus.Topic { return T("config", "hal") }

func topicHALState() bus.Topic { return T("hal", "state") }

func capBase(domain, kind, name string) bus.Topic { return T("hal", "cap", domain, kind, name) }

func capInfo(domain, kind, name string) bus.Topic { return capBase(domain, kind, name).Append("info") }

func capStatus(domain, kind, name string) bus.Topic {
	return capBase(domain, kind, name).Append("status")
}

func capValue(domain, kind, name string) bus.Topic {
	return capBase(domain, kind, name).Append("value")
}

func capEvent(domain, kind, name string) bus.Topic {
	return capBase(domain, kind, name).Append("event")
}

func capEventTagged(domain, kind, name, tag string) bus.Topic {
	return capEvent(domain, kind, name).Append(tag)
}

// hal/cap/+/+/+/control/+
func ctrlWildcard() bus.Topic {
	return T("hal", "cap", bus.TokPlus, bus.TokPlus, bus.TokPlus, "control", bus.TokPlus)
}

package notify

import "strings"

// carrierGateways maps a contact's carrier identifier to its email-to-SMS
// gateway domain. A contact with no direct email and a carrier outside this
// table cannot be reached and is skipped.
var carrierGateways = map[string]string{
	// India
	"airtel": "airtelmail.com",
	"jio":    "jio.com",
	"vi":     "vims.net",
	// US
	"att":        "txt.att.net",
	"tmobile":    "tmomail.net",
	"verizon":    "vtext.com",
	"sprint":     "messaging.sprintpcs.com",
	"uscellular": "email.uscc.net",
}

// gatewayAddress synthesizes an email-to-SMS address for the phone/carrier
// pair. Returns false when the carrier is unknown.
func gatewayAddress(phone, carrier string) (string, bool) {
	domain, ok := carrierGateways[strings.ToLower(carrier)]
	if !ok || phone == "" {
		return "", false
	}
	return phone + "@" + domain, true
}

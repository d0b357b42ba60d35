package telephony

import (
	"encoding/xml"
	"fmt"
)

// TwiML response elements for the voice webhooks.

type twimlResponse struct {
	XMLName xml.Name `xml:"Response"`
	Verbs   []any
}

type sayVerb struct {
	XMLName xml.Name `xml:"Say"`
	Voice   string   `xml:"voice,attr,omitempty"`
	Text    string   `xml:",chardata"`
}

type dialVerb struct {
	XMLName xml.Name `xml:"Dial"`
	Action  string   `xml:"action,attr,omitempty"`
	Timeout int      `xml:"timeout,attr,omitempty"`
	Number  string   `xml:"Number"`
}

type recordVerb struct {
	XMLName   xml.Name `xml:"Record"`
	Action    string   `xml:"action,attr,omitempty"`
	MaxLength int      `xml:"maxLength,attr,omitempty"`
	PlayBeep  bool     `xml:"playBeep,attr"`
}

type hangupVerb struct {
	XMLName xml.Name `xml:"Hangup"`
}

type gatherVerb struct {
	XMLName             xml.Name `xml:"Gather"`
	Action              string   `xml:"action,attr,omitempty"`
	NumDigits           int      `xml:"numDigits,attr,omitempty"`
	Timeout             int      `xml:"timeout,attr,omitempty"`
	ActionOnEmptyResult bool     `xml:"actionOnEmptyResult,attr"`
	Say                 sayVerb  `xml:"Say"`
}

type messageVerb struct {
	XMLName xml.Name `xml:"Message"`
	Text    string   `xml:",chardata"`
}

func render(verbs ...any) string {
	doc := twimlResponse{Verbs: verbs}
	out, err := xml.MarshalIndent(doc, "", "  ")
	if err != nil {
		// Marshal of these fixed structs cannot fail; keep the provider
		// from retrying forever if it somehow does.
		return xml.Header + "<Response></Response>"
	}
	return xml.Header + string(out)
}

// DialTwiML bridges the caller to the operator. The action URL receives
// the dial outcome so missed calls can trigger the SMS flow.
func DialTwiML(greeting, operatorNumber, actionURL string, timeoutSeconds int) string {
	if timeoutSeconds <= 0 {
		timeoutSeconds = 20
	}
	verbs := []any{}
	if greeting != "" {
		verbs = append(verbs, sayVerb{Text: greeting})
	}
	verbs = append(verbs, dialVerb{Action: actionURL, Timeout: timeoutSeconds, Number: operatorNumber})
	return render(verbs...)
}

// VoicemailTwiML plays the prompt and records a message, posting the
// recording to the voicemail callback.
func VoicemailTwiML(prompt, recordActionURL string) string {
	if prompt == "" {
		prompt = "We're unable to take your call right now. Please leave a message after the tone."
	}
	return render(
		sayVerb{Text: prompt},
		recordVerb{Action: recordActionURL, MaxLength: 120, PlayBeep: true},
	)
}

// GoodbyeTwiML thanks the caller and hangs up. Used after a voicemail
// recording completes.
func GoodbyeTwiML(businessName string) string {
	text := "Thank you. We'll text you shortly."
	if businessName != "" {
		text = fmt.Sprintf("Thank you for calling %s. We'll text you shortly.", businessName)
	}
	return render(sayVerb{Text: text}, hangupVerb{})
}

// GatherTwiML prompts for a single digit and posts the result (or a
// timeout, via actionOnEmptyResult) to the action URL. Emergency mode
// uses this for its press-1 escalation.
func GatherTwiML(prompt, actionURL string, timeoutSeconds int) string {
	if timeoutSeconds <= 0 {
		timeoutSeconds = 5
	}
	return render(gatherVerb{
		Action:              actionURL,
		NumDigits:           1,
		Timeout:             timeoutSeconds,
		ActionOnEmptyResult: true,
		Say:                 sayVerb{Text: prompt},
	})
}

// MessageTwiML replies to an inbound SMS inline. Used for the STOP and
// HELP acknowledgements, which must go out even to opted-out numbers and
// so bypass the queue entirely.
func MessageTwiML(text string) string {
	return render(messageVerb{Text: text})
}

// EmptyTwiML is the no-op response for unknown tenants and duplicate
// webhooks. Always 200 so the provider stops retrying.
func EmptyTwiML() string {
	return render()
}

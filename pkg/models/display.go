package models

// DisplayStatus computes the status a client should show for a message,
// derived on demand from the raw recipient sets. sending and error pass
// through; otherwise the message is read only once every other
// participant has read it, delivered only once every other participant
// has received it, else sent. A conversation with no other participants
// is always sent.
func DisplayStatus(m *Message, participantIDs []string) Status {
	if m.Status == StatusSending || m.Status == StatusError {
		return m.Status
	}
	others := 0
	allRead, allDelivered := true, true
	for _, id := range participantIDs {
		if id == m.SenderID {
			continue
		}
		others++
		if !Contains(m.ReadBy, id) {
			allRead = false
		}
		if !Contains(m.DeliveredTo, id) {
			allDelivered = false
		}
	}
	if others == 0 {
		return StatusSent
	}
	if allRead {
		return StatusRead
	}
	if allDelivered {
		return StatusDelivered
	}
	return StatusSent
}

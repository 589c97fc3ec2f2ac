package bridge

import "encoding/json"

// Every message crossing the host boundary is {type, payload}, both ways
type (
	Message struct {
		Type    string `json:"type"`
		Payload any    `json:"payload,omitempty"`
	}

	inboundMessage struct {
		Type    string          `json:"type"`
		Payload json.RawMessage `json:"payload,omitempty"`
	}

	purchaseKeyPayload struct {
		Lock         string `json:"lock"`
		AmountToSend string `json:"amountToSend,omitempty"`
		ERC20Address string `json:"erc20Address,omitempty"`
	}
)

// inbound message kinds
const (
	MsgConfig      = "config"
	MsgPurchaseKey = "purchaseKey"
	MsgSendUpdates = "send/updates"
)

// outbound message kinds
const (
	MsgReady                = "ready"
	MsgLocked               = "locked"
	MsgUnlocked             = "unlocked"
	MsgUpdateLocks          = "update/locks"
	MsgUpdateAccount        = "update/account"
	MsgUpdateAccountBalance = "update/accountBalance"
	MsgUpdateNetwork        = "update/network"
	MsgError                = "error"
)

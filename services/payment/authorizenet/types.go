package authorizenet

type createTransactionRequestWrapper struct {
	CreateTransactionRequest createTransactionRequest `json:"createTransactionRequest"`
}

type createTransactionRequest struct {
	MerchantAuthentication merchantAuthenticationType `json:"merchantAuthentication"`
	RefID                  string                     `json:"refId,omitempty"`
	TransactionRequest     transactionRequestType     `json:"transactionRequest"`
}

type merchantAuthenticationType struct {
	Name           string `json:"name"`
	TransactionKey string `json:"transactionKey"`
}

type CreditCardType struct {
	CardNumber     string `json:"cardNumber"`
	ExpirationDate string `json:"expirationDate"`
	CardCode       string `json:"cardCode,omitempty"`
}

type PaymentType struct {
	CreditCard CreditCardType `json:"creditCard"`
}

type OrderType struct {
	InvoiceNumber string `json:"invoiceNumber"`
	Description   string `json:"description,omitempty"`
}

type CustomerAddressType struct {
	FirstName string `json:"firstName,omitempty"`
	LastName  string `json:"lastName,omitempty"`
}

type SettingType struct {
	SettingName  string `json:"settingName"`
	SettingValue string `json:"settingValue"`
}

type TransactionSettingsType struct {
	Setting []SettingType `json:"setting"`
}

// CardholderAuthenticationType carries the 3-D Secure result with the charge.
type CardholderAuthenticationType struct {
	AuthenticationIndicator       string `json:"authenticationIndicator"`
	CardholderAuthenticationValue string `json:"cardholderAuthenticationValue"`
}

// Field order follows the gateway's schema, which is order sensitive.
type transactionRequestType struct {
	TransactionType          string                        `json:"transactionType"`
	Amount                   string                        `json:"amount,omitempty"`
	CurrencyCode             string                        `json:"currencyCode,omitempty"`
	Payment                  *PaymentType                  `json:"payment,omitempty"`
	RefTransID               string                        `json:"refTransId,omitempty"`
	Order                    *OrderType                    `json:"order,omitempty"`
	BillTo                   *CustomerAddressType          `json:"billTo,omitempty"`
	TransactionSettings      *TransactionSettingsType      `json:"transactionSettings,omitempty"`
	CardholderAuthentication *CardholderAuthenticationType `json:"cardholderAuthentication,omitempty"`
}

type MessageType struct {
	Code        string `json:"code"`
	Text        string `json:"text"`
	Description string `json:"description,omitempty"`
}

type MessagesType struct {
	ResultCode string        `json:"resultCode"`
	Message    []MessageType `json:"message"`
}

type transactionErrorType struct {
	ErrorCode string `json:"errorCode"`
	ErrorText string `json:"errorText"`
}

type transactionResponse struct {
	ResponseCode  string                 `json:"responseCode"`
	AuthCode      string                 `json:"authCode"`
	AVSResultCode string                 `json:"avsResultCode"`
	CVVResultCode string                 `json:"cvvResultCode"`
	TransID       string                 `json:"transId"`
	RefTransID    string                 `json:"refTransID"`
	AccountNumber string                 `json:"accountNumber"`
	Messages      []MessageType          `json:"messages,omitempty"`
	Errors        []transactionErrorType `json:"errors,omitempty"`
}

type createTransactionResponse struct {
	TransactionResponse transactionResponse `json:"transactionResponse"`
	RefID               string              `json:"refId,omitempty"`
	Messages            MessagesType        `json:"messages"`
}

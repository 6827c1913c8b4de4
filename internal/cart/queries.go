package cart

const cartFields = `subtotal items { id quantity unitPriceSnapshot lineTotal product { id name imageUrl price } }`

const (
	countQuery = `query CartSummary { cartSummary { count } }`
	cartQuery  = `query Cart { cart { ` + cartFields + ` } }`

	addMutation = `mutation AddToCart($productId: ID!, $quantity: Int!) {
  addToCart(productId: $productId, quantity: $quantity) { success cart { ` + cartFields + ` } }
}`
	updateMutation = `mutation UpdateCartItem($productId: ID!, $quantity: Int!) {
  updateCartItem(productId: $productId, quantity: $quantity) { success cart { ` + cartFields + ` } }
}`
	removeMutation = `mutation RemoveFromCart($productId: ID!) {
  removeFromCart(productId: $productId) { success cart { ` + cartFields + ` } }
}`
	clearMutation = `mutation ClearCart { clearCart { success cart { ` + cartFields + ` } } }`
)
